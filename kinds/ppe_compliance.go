package kinds

import (
	"math"

	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/schema"
)

// PPE compliance check statuses.
const (
	PPEDraft          = "draft"
	PPECompleted      = "completed"
	PPEReviewed       = "reviewed"
	PPEActionRequired = "action_required"
)

// Compliance thresholds. Below ActionThreshold a check needs action, at or
// above CompletedThreshold it is complete; in between the status is kept.
const (
	ActionThreshold    = 75
	CompletedThreshold = 90
	// a worker with at least this share of compliant items is compliant
	workerCompliantPct = 80
)

func PPECompliance() *schema.Kind {
	addWorker := addItem("add-worker-audit", "workerAudits", nil,
		[]string{"workerId", "name", "photo", "ppeItems", "compliant", "notes"}, nil)
	addWorker.Check = func(doc models.Document, in schema.ActionInput) error {
		if doc.String("mode") != "detailed" {
			return schema.Invalid("mode", "worker audits can only be added to detailed mode compliance checks")
		}
		return nil
	}
	updateWorker := updateItem("update-worker-audit", "workerAudits", "workerId", "workerId",
		[]string{"name", "photo", "ppeItems", "compliant", "notes"}, nil)

	return &schema.Kind{
		Name:       "ppe-compliance",
		Title:      "PPE compliance check",
		Collection: "ppe_compliance_checks",
		DateField:  "auditDate",
		Fields: []schema.Field{
			schema.Enum("mode", "quick", "detailed"),
			schema.String("area"),
			schema.String("activity"),
			schema.Time("auditDate"),
			schema.String("auditorName"),
			schema.String("auditorId"),
			schema.Int("workersCount").WithDefault(int64(0)),
			schema.Int("compliantCount").WithDefault(int64(0)),
			schema.Int("complianceRate").Derived(),
			schema.String("groupPhoto"),
			schema.Object("averagePpeChecks",
				schema.Bool("helmet").WithDefault(false),
				schema.Bool("shoes").WithDefault(false),
				schema.Bool("vest").WithDefault(false),
				schema.Bool("glasses").WithDefault(false),
				schema.Bool("gloves").WithDefault(false),
				schema.Bool("harness").WithDefault(false),
				schema.Bool("earProtection").WithDefault(false),
			),
			schema.Objects("workerAudits",
				schema.String("workerId"),
				schema.String("name"),
				schema.String("photo"),
				schema.Objects("ppeItems",
					schema.String("id"),
					schema.String("label"),
					schema.String("icon"),
					schema.Bool("required").WithDefault(false),
					schema.Bool("compliant").WithDefault(false),
					schema.Enum("condition", "good", "fair", "poor", "not_applicable").WithDefault("good"),
				),
				schema.Bool("compliant").WithDefault(false),
				schema.Int("compliancePercentage").WithDefault(int64(0)),
				schema.String("notes"),
			),
			schema.Int("totalAudited").Derived(),
			schema.Int("totalCompliant").Derived(),
			schema.Int("totalIssues").Derived(),
			schema.Int("overallComplianceRate").Derived(),
			schema.Int("effectiveComplianceRate").Derived(),
			schema.Enum("complianceStatus", "excellent", "good", "fair", "poor").Derived(),
			schema.Strings("photos"),
			schema.String("notes"),
			schema.String("weatherConditions"),
			schema.Objects("actionItems",
				schema.String("id"),
				schema.String("workerId"),
				schema.String("description"),
				schema.Enum("priority", actionPriorities...).WithDefault("medium"),
				schema.Enum("status", "pending", "in_progress", "completed", "cancelled").WithDefault("pending"),
				schema.String("assignedTo"),
				schema.Time("dueDate"),
				schema.Time("completedDate"),
				schema.String("notes"),
			).WithIDs(),
			schema.Int("pendingActionItems").Derived(),
			schema.String("reviewedBy"),
			schema.String("reviewNotes"),
			schema.Time("reviewedAt"),
		},
		Lifecycle: schema.Lifecycle{
			States:  []string{PPEDraft, PPECompleted, PPEReviewed, PPEActionRequired},
			Initial: PPEDraft,
			Draft:   PPEDraft,
			Entry:   []string{PPECompleted, PPEActionRequired},
			Actions: []schema.Action{
				{Name: "submit", From: []string{PPEDraft}, To: PPECompleted},
				{Name: "require-action", From: []string{PPEDraft, PPECompleted}, To: PPEActionRequired},
				{Name: "resolve", From: []string{PPEActionRequired}, To: PPECompleted},
				{
					Name:   "review",
					From:   []string{PPECompleted, PPEActionRequired},
					To:     PPEReviewed,
					Fields: []string{"reviewedBy", "reviewNotes"},
					Apply: func(doc models.Document, in schema.ActionInput) {
						schema.StampActor(doc, "reviewedBy", in.Actor)
						doc["reviewedAt"] = in.Now
					},
				},
				addWorker,
				updateWorker,
				addItem("add-action-item", "actionItems", []string{"description"},
					[]string{"workerId", "description", "priority", "assignedTo", "dueDate", "notes"},
					models.Document{"status": "pending", "priority": "medium"}),
				updateItem("update-action-item", "actionItems", "actionItemId", "id",
					[]string{"status", "notes", "assignedTo", "dueDate"},
					func(item models.Document, in schema.ActionInput) {
						if item.String("status") == "completed" {
							schema.Stamp(item, "completedDate", in.Now)
						}
					}),
			},
		},
		Rules: []schema.Rule{
			schema.SubmitRequired("mode", "area", "activity", "auditorName"),
			schema.NotInFuture("auditDate"),
			schema.NonNegative("workersCount", "compliantCount"),
			schema.NotGreaterThan("compliantCount", "workersCount"),
			schema.OnSubmit(schema.When(schema.Equals("mode", "quick"),
				schema.AtLeast("workersCount", 1),
			)),
			schema.Each("workerAudits", schema.Range("compliancePercentage", 0, 100)),
			schema.Each("actionItems", schema.Required("description")),
			schema.MaxItems("photos", MaxPhotos),
		},
		Derive: []schema.DeriveFunc{
			ppeComplianceRates,
		},
		Filters: []schema.Filter{
			schema.Exact("mode"),
			schema.Search("area"),
			schema.Search("auditorName"),
			schema.Exact("complianceStatus"),
		},
		Stats: []schema.Stat{
			totals("summary",
				repository.CountIf("quickChecks", repository.Eq("mode", "quick")),
				repository.CountIf("detailedAudits", repository.Eq("mode", "detailed")),
				repository.CountIf("actionRequired", repository.Eq(models.FieldStatus, PPEActionRequired)),
				repository.Sum("totalWorkers", "workersCount"),
				repository.Sum("totalCompliant", "compliantCount"),
				repository.Sum("totalAudited", "totalAudited"),
				repository.Avg("avgComplianceRate", "effectiveComplianceRate"),
			),
			countBy("byComplianceStatus", "complianceStatus"),
		},
		Reports: []schema.Report{
			breakdownReport("stats/areas", "area", ppeMetrics()...),
			breakdownReport("stats/auditors", "auditorName", ppeMetrics()...),
			trendReport("stats/compliance-trends", "auditDate",
				repository.Avg("avgComplianceRate", "complianceRate"),
				repository.Avg("avgOverallComplianceRate", "overallComplianceRate"),
				repository.Sum("totalWorkers", "workersCount"),
				repository.Sum("totalCompliant", "compliantCount"),
			),
		},
		Indexes: [][]string{{"projectId", "auditDate"}, {"mode", "auditDate"}, {"area"}, {"auditorName"}, {"status"}},
	}
}

func ppeMetrics() []repository.Metric {
	return []repository.Metric{
		repository.CountIf("quickChecks", repository.Eq("mode", "quick")),
		repository.CountIf("detailedAudits", repository.Eq("mode", "detailed")),
		repository.Sum("totalWorkers", "workersCount"),
		repository.Sum("totalCompliant", "compliantCount"),
		repository.Avg("avgComplianceRate", "complianceRate"),
		repository.Avg("avgOverallComplianceRate", "overallComplianceRate"),
	}
}

// ppeComplianceRates recomputes worker, quick and detailed compliance rates
// and applies the status band.
func ppeComplianceRates(doc models.Document, env schema.DeriveEnv) {
	workers := doc.Objects("workerAudits")
	var compliant int64
	for _, w := range workers {
		items := w.Objects("ppeItems")
		if len(items) > 0 {
			var ok int
			for _, item := range items {
				if item.Bool("compliant") {
					ok++
				}
			}
			pct := int64(math.Round(float64(ok) / float64(len(items)) * 100))
			w["compliancePercentage"] = pct
			if pct >= workerCompliantPct {
				w["compliant"] = true
			}
		}
		if w.Bool("compliant") {
			compliant++
		}
	}
	if workers != nil {
		doc["workerAudits"] = workers
	}
	audited := int64(len(workers))
	doc["totalAudited"] = audited
	doc["totalCompliant"] = compliant
	doc["totalIssues"] = audited - compliant
	doc["overallComplianceRate"] = percent(compliant, audited)
	doc["complianceRate"] = percent(doc.Int("compliantCount"), doc.Int("workersCount"))

	var pending int64
	for _, a := range doc.Objects("actionItems") {
		if a.String("status") == "pending" {
			pending++
		}
	}
	doc["pendingActionItems"] = pending

	rate, ok := effectiveRate(doc)
	if !ok {
		delete(doc, "effectiveComplianceRate")
		delete(doc, "complianceStatus")
		return
	}
	doc["effectiveComplianceRate"] = rate
	doc["complianceStatus"] = complianceLabel(rate)

	switch doc.String(models.FieldStatus) {
	case PPEDraft, PPEReviewed:
		return
	}
	switch {
	case rate < ActionThreshold:
		doc[models.FieldStatus] = PPEActionRequired
	case rate >= CompletedThreshold:
		doc[models.FieldStatus] = PPECompleted
	}
}

// effectiveRate is the quick-mode rate or the detailed-mode overall rate,
// whichever applies to the check's mode. It reports false until there is
// something to rate.
func effectiveRate(doc models.Document) (int64, bool) {
	if doc.String("mode") == "detailed" {
		if doc.Int("totalAudited") == 0 {
			return 0, false
		}
		return doc.Int("overallComplianceRate"), true
	}
	if doc.Int("workersCount") == 0 {
		return 0, false
	}
	return doc.Int("complianceRate"), true
}

func complianceLabel(rate int64) string {
	switch {
	case rate >= CompletedThreshold:
		return "excellent"
	case rate >= ActionThreshold:
		return "good"
	case rate >= 60:
		return "fair"
	}
	return "poor"
}

func percent(part, whole int64) int64 {
	if whole <= 0 {
		return 0
	}
	return int64(math.Round(float64(part) / float64(whole) * 100))
}
