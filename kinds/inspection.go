package kinds

import (
	"math"

	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/schema"
)

// Inspection category states.
const (
	CategoryActive   = "active"
	CategoryInactive = "inactive"
)

// Inspection result states, held in overallStatus.
const (
	InspectionDraft       = "draft"
	InspectionInProgress  = "in_progress"
	InspectionCompleted   = "completed"
	InspectionNeedsAction = "needs_action"
	InspectionClosed      = "closed"
)

var actionPriorities = []string{"low", "medium", "high", "critical"}

// InspectionCategory is a reusable checklist definition.
func InspectionCategory() *schema.Kind {
	return &schema.Kind{
		Name:       "inspection-category",
		Title:      "Inspection category",
		Collection: "inspection_categories",
		Fields: []schema.Field{
			schema.String("code"),
			schema.String("title"),
			schema.String("description"),
			schema.String("icon"),
			schema.Objects("checklistItems",
				schema.String("id"),
				schema.String("item"),
				schema.String("category"),
				schema.Bool("requiresPhoto").WithDefault(false),
				schema.Bool("requiresAction").WithDefault(false),
				schema.Bool("critical").WithDefault(false),
			).WithIDs(),
			schema.Bool("isActive").Derived(),
			schema.Int("checklistItemsCount").Derived(),
			schema.Int("criticalItemsCount").Derived(),
			schema.Int("photoRequiredItemsCount").Derived(),
		},
		Lifecycle: schema.Lifecycle{
			States:  []string{CategoryActive, CategoryInactive},
			Initial: CategoryActive,
			Entry:   []string{CategoryActive, CategoryInactive},
			Actions: []schema.Action{
				{Name: "deactivate", From: []string{CategoryActive}, To: CategoryInactive},
				{Name: "activate", From: []string{CategoryInactive}, To: CategoryActive},
			},
		},
		Rules: []schema.Rule{
			schema.Required("code", "title", "description", "icon"),
			schema.NonEmptyList("checklistItems", "At least one checklist item is required"),
			schema.Each("checklistItems", schema.Required("item")),
			schema.UniqueBy("checklistItems", "id"),
		},
		Derive: []schema.DeriveFunc{
			func(doc models.Document, env schema.DeriveEnv) {
				doc["isActive"] = doc.String(models.FieldStatus) == CategoryActive
				var critical, photo int64
				items := doc.Objects("checklistItems")
				for _, item := range items {
					if item.Bool("critical") {
						critical++
					}
					if item.Bool("requiresPhoto") {
						photo++
					}
				}
				doc["checklistItemsCount"] = int64(len(items))
				doc["criticalItemsCount"] = critical
				doc["photoRequiredItemsCount"] = photo
			},
		},
		Filters: []schema.Filter{
			schema.Flag("isActive"),
			schema.Search("title"),
			schema.Exact("code"),
		},
		Stats: []schema.Stat{
			totals("summary",
				repository.CountIf(CategoryActive, repository.Eq(models.FieldStatus, CategoryActive)),
				repository.Sum("checklistItems", "checklistItemsCount"),
				repository.Sum("criticalItems", "criticalItemsCount"),
			),
		},
		Indexes: [][]string{{"projectId", "isActive"}, {"title"}, {"checklistItems.id"}},
		Unique:  [][]string{{"projectId", "code"}},
	}
}

// InspectionResult is one execution of a category's checklist.
func InspectionResult() *schema.Kind {
	return &schema.Kind{
		Name:       "inspection-result",
		Title:      "Inspection result",
		Collection: "inspection_results",
		DateField:  "inspectionDate",
		Fields: []schema.Field{
			schema.String("categoryId"),
			schema.String("categoryTitle"),
			schema.Time("inspectionDate"),
			schema.String("location"),
			schema.String("inspectorName"),
			schema.String("inspectorId"),
			schema.Objects("itemResults",
				schema.String("itemId"),
				schema.Enum("status", "pass", "fail", "na"),
				schema.String("notes"),
				schema.Strings("photos"),
				schema.Bool("critical").WithDefault(false),
				schema.Bool("actionRequired").WithDefault(false),
				schema.String("actionTaken"),
				schema.Time("actionDate"),
			),
			schema.Int("passCount").Derived(),
			schema.Int("failCount").Derived(),
			schema.Int("naCount").Derived(),
			schema.Int("totalItems").Derived(),
			schema.Int("passPercentage").Derived(),
			schema.Int("criticalFailures").Derived(),
			schema.Int("pendingActionItems").Derived(),
			schema.Objects("actionItems",
				schema.String("itemId"),
				schema.String("description"),
				schema.Enum("priority", actionPriorities...).WithDefault("medium"),
				schema.Enum("status", "pending", "in_progress", "completed", "cancelled").WithDefault("pending"),
				schema.String("assignedTo"),
				schema.Time("dueDate"),
				schema.Time("completedDate"),
				schema.String("notes"),
			),
			schema.Strings("photos"),
			schema.String("notes"),
			schema.String("weatherConditions"),
			schema.Time("closedAt"),
		},
		Lifecycle: schema.Lifecycle{
			Field: "overallStatus",
			States: []string{InspectionDraft, InspectionInProgress, InspectionCompleted,
				InspectionNeedsAction, InspectionClosed},
			Initial: InspectionDraft,
			Draft:   InspectionDraft,
			Entry:   []string{InspectionInProgress, InspectionCompleted, InspectionNeedsAction},
			Actions: []schema.Action{
				{Name: "start", From: []string{InspectionDraft}, To: InspectionInProgress},
				{Name: "complete", From: []string{InspectionDraft, InspectionInProgress, InspectionNeedsAction}, To: InspectionCompleted},
				{
					Name: "close",
					From: []string{InspectionInProgress, InspectionCompleted, InspectionNeedsAction},
					To:   InspectionClosed,
					Apply: func(doc models.Document, in schema.ActionInput) {
						schema.Stamp(doc, "closedAt", in.Now)
					},
				},
				{Name: "reopen", From: []string{InspectionClosed}, To: InspectionInProgress},
				upsertItem("update-item", "itemResults", "itemId", []string{"status"},
					[]string{"status", "notes", "photos", "actionRequired", "critical", "actionTaken", "actionDate"}, nil),
				upsertItem("add-action-item", "actionItems", "itemId", []string{"description"},
					[]string{"description", "priority", "assignedTo", "dueDate", "notes"},
					func(item models.Document, in schema.ActionInput) {
						item["status"] = "pending"
						if !item.Present("priority") {
							item["priority"] = "medium"
						}
					}),
				updateItem("update-action-item", "actionItems", "itemId", "itemId",
					[]string{"status", "notes", "assignedTo", "dueDate"},
					func(item models.Document, in schema.ActionInput) {
						if item.String("status") == "completed" {
							schema.Stamp(item, "completedDate", in.Now)
						}
					}),
			},
		},
		Rules: []schema.Rule{
			schema.SubmitRequired("categoryId", "categoryTitle", "location", "inspectorName"),
			schema.NonEmptyList("itemResults", "At least one item result is required"),
			schema.Each("itemResults", schema.Required("itemId", "status")),
			schema.UniqueBy("itemResults", "itemId"),
			schema.Each("actionItems", schema.Required("itemId", "description")),
			schema.When(schema.Equals("overallStatus", InspectionCompleted), schema.NotInFuture("inspectionDate")),
			schema.MaxItems("photos", MaxPhotos),
		},
		Derive: []schema.DeriveFunc{
			inspectionStatistics,
			stampOnStatus("closedAt", InspectionClosed),
		},
		Filters: []schema.Filter{
			schema.Exact("categoryId"),
			schema.Search("location"),
			schema.Search("inspectorName"),
		},
		Stats: []schema.Stat{
			totals("summary",
				repository.CountIf("draft", repository.Eq("overallStatus", InspectionDraft)),
				repository.CountIf("inProgress", repository.Eq("overallStatus", InspectionInProgress)),
				repository.CountIf("completed", repository.Eq("overallStatus", InspectionCompleted)),
				repository.CountIf("needsAction", repository.Eq("overallStatus", InspectionNeedsAction)),
				repository.CountIf("closed", repository.Eq("overallStatus", InspectionClosed)),
				repository.Sum("totalPass", "passCount"),
				repository.Sum("totalFail", "failCount"),
				repository.Sum("totalNA", "naCount"),
				repository.Sum("totalItems", "totalItems"),
				repository.Avg("avgPassPercentage", "passPercentage"),
				repository.Sum("criticalFailures", "criticalFailures"),
			),
		},
		Reports: []schema.Report{
			breakdownReport("stats/categories", "categoryTitle", checklistMetrics()...),
			breakdownReport("stats/inspectors", "inspectorName", checklistMetrics()...),
		},
		Indexes: [][]string{{"projectId", "inspectionDate"}, {"categoryId", "inspectionDate"}, {"inspectorName"}, {"overallStatus"}, {"location"}},
	}
}

func checklistMetrics() []repository.Metric {
	return []repository.Metric{
		repository.Sum("totalPass", "passCount"),
		repository.Sum("totalFail", "failCount"),
		repository.Sum("totalNA", "naCount"),
		repository.Sum("totalItems", "totalItems"),
		repository.Avg("avgPassPercentage", "passPercentage"),
		repository.Sum("criticalFailures", "criticalFailures"),
	}
}

// inspectionStatistics recounts item results. Open inspections move to
// needs_action on any failure and to completed once every item passed or
// was not applicable; drafts and closed inspections keep their status.
func inspectionStatistics(doc models.Document, env schema.DeriveEnv) {
	var pass, fail, na, critical int64
	items := doc.Objects("itemResults")
	for _, item := range items {
		switch item.String("status") {
		case "pass":
			pass++
		case "fail":
			fail++
			if item.Bool("critical") {
				critical++
			}
		case "na":
			na++
		}
	}
	total := int64(len(items))
	doc["passCount"] = pass
	doc["failCount"] = fail
	doc["naCount"] = na
	doc["totalItems"] = total
	doc["criticalFailures"] = critical
	doc["passPercentage"] = int64(0)
	if total > 0 {
		doc["passPercentage"] = int64(math.Round(float64(pass) / float64(total) * 100))
	}

	var pending int64
	for _, a := range doc.Objects("actionItems") {
		if a.String("status") == "pending" {
			pending++
		}
	}
	doc["pendingActionItems"] = pending

	switch doc.String("overallStatus") {
	case InspectionDraft, InspectionClosed:
		return
	}
	if fail > 0 {
		doc["overallStatus"] = InspectionNeedsAction
	} else if total > 0 && pass+na == total {
		doc["overallStatus"] = InspectionCompleted
	}
}
