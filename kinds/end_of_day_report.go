package kinds

import (
	"context"
	"fmt"
	"math"
	"time"

	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/schema"
)

// End-of-day report statuses.
const (
	DayReportDraft     = "draft"
	DayReportSubmitted = "submitted"
	DayReportApproved  = "approved"
	DayReportArchived  = "archived"
)

// scoreParts are the weighted components of the composite safety score
// with their default maxima.
var scoreParts = []struct {
	Name string
	Max  float64
}{
	{"briefingCompletion", 20},
	{"inspectionQuality", 25},
	{"ppeCompliance", 20},
	{"observationsLogged", 15},
	{"zeroIncidents", 20},
}

var siteStatuses = []string{"excellent", "good", "satisfactory", "needs_improvement"}

func EndOfDayReport() *schema.Kind {
	breakdown := make([]schema.Field, 0, len(scoreParts))
	for _, p := range scoreParts {
		breakdown = append(breakdown, schema.Object(p.Name,
			schema.Float("score").WithDefault(float64(0)),
			schema.Float("maxScore").WithDefault(p.Max),
		))
	}
	counts := []string{
		"workStatistics.totalWorkers", "workStatistics.meilEmployees", "workStatistics.subcontractor",
		"workStatistics.visitors", "workStatistics.manHours",
	}
	scores := []string{"safetyPerformance.ppeCompliance", "safetyPerformance.housekeeping", "safetyPerformance.equipmentSafety"}

	rules := []schema.Rule{
		schema.SubmitRequired(counts...),
		schema.SubmitRequired(scores...),
		schema.SubmitRequired("ssoReview.siteStatus", "ssoReview.highlights", "ssoReview.ssoSignature"),
		schema.NonNegative(counts...),
		schema.NonNegative("workStatistics.safeDays"),
		schema.Each("workStatistics.highRiskActivities", schema.Required("activity"), schema.NonNegative("count")),
		schema.Range("safetyPerformance.safetyScore", 0, 100),
		schema.MaxItems("ssoReview.photos", MaxPhotos),
		schema.RequiredIf("approvedBy", schema.Equals(models.FieldStatus, DayReportApproved), "the report is approved"),
	}
	for _, f := range scores {
		rules = append(rules, schema.Range(f, 0, 100))
	}
	for _, p := range scoreParts {
		rules = append(rules, schema.NonNegative("safetyPerformance.scoreBreakdown."+p.Name+".score"))
	}

	return &schema.Kind{
		Name:       "end-of-day-report",
		Title:      "End of day report",
		Collection: "end_of_day_reports",
		DateField:  "reportDate",
		HumanID: &schema.HumanID{Field: "reportId", Generate: func(now time.Time, rnd func(int) int) string {
			return fmt.Sprintf("DR-%d-%02d%02d-%03d", now.Year(), int(now.Month()), now.Day(), rnd(1000))
		}},
		Fields: []schema.Field{
			schema.String("reportId"),
			schema.Time("reportDate"),
			schema.Object("workStatistics",
				schema.Int("totalWorkers"),
				schema.Int("meilEmployees"),
				schema.Int("subcontractor"),
				schema.Int("visitors"),
				schema.Int("manHours"),
				schema.Int("safeDays").WithDefault(int64(0)),
				schema.Objects("highRiskActivities",
					schema.Enum("activity", "height", "hotwork", "confined", "excavation", "lifting", "electrical"),
					schema.Int("count").WithDefault(int64(0)),
				),
				schema.Object("workPermits",
					schema.Int("height").WithDefault(int64(0)),
					schema.Int("hotWork").WithDefault(int64(0)),
					schema.Int("excavation").WithDefault(int64(0)),
				),
			),
			schema.Object("safetyPerformance",
				schema.Int("safetyScore"),
				schema.Bool("scoreCalculated").Derived(),
				schema.Int("ppeCompliance"),
				schema.Int("housekeeping"),
				schema.Int("equipmentSafety"),
				schema.Object("scoreBreakdown", breakdown...),
			),
			schema.Object("activitiesSummary",
				schema.Object("toolboxTalks", schema.Int("count").WithDefault(int64(0)), schema.Int("attendees").WithDefault(int64(0)), schema.Strings("topics")),
				schema.Object("siteInspections", schema.Int("count").WithDefault(int64(0)), schema.Strings("categories")),
				schema.Object("incidentsReported", schema.Int("count").WithDefault(int64(0)), schema.Strings("types")),
				schema.Object("observationsLogged", schema.Int("count").WithDefault(int64(0)), schema.Int("safe").WithDefault(int64(0)), schema.Int("unsafe").WithDefault(int64(0))),
				schema.Object("openActions",
					schema.Int("count").WithDefault(int64(0)),
					schema.Int("critical").WithDefault(int64(0)),
					schema.Int("high").WithDefault(int64(0)),
					schema.Int("medium").WithDefault(int64(0)),
					schema.Int("low").WithDefault(int64(0)),
				),
			),
			schema.Object("ssoReview",
				schema.Enum("siteStatus", siteStatuses...),
				schema.String("highlights"),
				schema.String("concerns"),
				schema.String("tomorrowPlan"),
				schema.String("weatherImpact"),
				schema.String("equipmentIssues"),
				schema.Strings("photos"),
				schema.String("ssoSignature"),
			),
			schema.String("approvedBy"),
			schema.Time("approvedAt"),
			schema.String("approvalNotes"),
			schema.Float("averageHoursPerWorker").Derived(),
			schema.Bool("workerCountMismatch").Derived(),
			schema.String("safetyGrade").Derived(),
			schema.Enum("complianceStatus", siteStatuses...).Derived(),
		},
		Lifecycle: schema.Lifecycle{
			States:  []string{DayReportDraft, DayReportSubmitted, DayReportApproved, DayReportArchived},
			Initial: DayReportDraft,
			Draft:   DayReportDraft,
			Entry:   []string{DayReportSubmitted},
			Actions: []schema.Action{
				{Name: "submit", From: []string{DayReportDraft}, To: DayReportSubmitted},
				{
					Name:   "approve",
					From:   []string{DayReportSubmitted},
					To:     DayReportApproved,
					Fields: []string{"approvedBy", "approvalNotes"},
					Apply: func(doc models.Document, in schema.ActionInput) {
						schema.StampActor(doc, "approvedBy", in.Actor)
						doc["approvedAt"] = in.Now
					},
				},
				{Name: "archive", From: []string{DayReportSubmitted, DayReportApproved}, To: DayReportArchived},
			},
		},
		Rules: rules,
		Derive: []schema.DeriveFunc{
			compositeSafetyScore,
			workforceFigures,
			stampOnStatus("approvedAt", DayReportApproved),
		},
		Filters: []schema.Filter{
			schema.Exact("ssoReview.siteStatus").As("siteStatus"),
			schema.Exact("safetyGrade"),
			schema.Exact("complianceStatus"),
		},
		Stats: []schema.Stat{
			totals("summary", append(countsOf(models.FieldStatus, DayReportDraft, DayReportSubmitted, DayReportApproved, DayReportArchived),
				repository.Sum("totalWorkers", "workStatistics.totalWorkers"),
				repository.Sum("totalManHours", "workStatistics.manHours"),
				repository.Avg("avgSafetyScore", "safetyPerformance.safetyScore"),
				repository.Avg("avgPpeCompliance", "safetyPerformance.ppeCompliance"),
				repository.Avg("avgHousekeeping", "safetyPerformance.housekeeping"),
				repository.Avg("avgEquipmentSafety", "safetyPerformance.equipmentSafety"),
				repository.Sum("totalToolboxTalks", "activitiesSummary.toolboxTalks.count"),
				repository.Sum("totalSiteInspections", "activitiesSummary.siteInspections.count"),
				repository.Sum("totalIncidents", "activitiesSummary.incidentsReported.count"),
				repository.Sum("totalObservations", "activitiesSummary.observationsLogged.count"),
				repository.Sum("totalOpenActions", "activitiesSummary.openActions.count"),
			)...),
			countBy("byGrade", "safetyGrade"),
		},
		Reports: []schema.Report{
			{Path: "performance/trends", Run: performanceTrends},
			{Path: "workforce/analytics", Run: func(ctx context.Context, rc schema.ReportContext) (any, error) {
				rows, err := rc.Aggregate(ctx, repository.Aggregation{Metrics: []repository.Metric{
					repository.Count("reports"),
					repository.Avg("avgTotalWorkers", "workStatistics.totalWorkers"),
					repository.Avg("avgMeilEmployees", "workStatistics.meilEmployees"),
					repository.Avg("avgSubcontractors", "workStatistics.subcontractor"),
					repository.Avg("avgVisitors", "workStatistics.visitors"),
					repository.Avg("avgManHours", "workStatistics.manHours"),
					repository.Avg("avgHoursPerWorker", "averageHoursPerWorker"),
					repository.Sum("totalManHours", "workStatistics.manHours"),
					repository.Max("maxWorkers", "workStatistics.totalWorkers"),
					repository.Min("minWorkers", "workStatistics.totalWorkers"),
				}})
				if err != nil || len(rows) == 0 {
					return models.Document{}, err
				}
				return rows[0], nil
			}},
			{Path: "latest", Run: func(ctx context.Context, rc schema.ReportContext) (any, error) {
				docs, err := rc.Find(ctx, nil, []repository.Sort{{Field: "reportDate", Desc: true}}, 1)
				if err != nil {
					return nil, err
				}
				if len(docs) == 0 {
					return nil, fmt.Errorf("no end of day reports for this project: %w", repository.ErrNotFound)
				}
				return docs[0], nil
			}},
		},
		Indexes: [][]string{{"projectId", "reportDate"}, {"status"}, {"workStatistics.manHours"}, {"safetyPerformance.safetyScore"}},
	}
}

// compositeSafetyScore fills safetyPerformance.safetyScore from the score
// breakdown unless the caller supplied a non-zero score. A calculated score
// keeps following the breakdown on later writes.
func compositeSafetyScore(doc models.Document, env schema.DeriveEnv) {
	perf := doc.Object("safetyPerformance")
	if perf == nil {
		return
	}
	supplied, ok := env.Input.Get("safetyPerformance.safetyScore")
	if n, isNum := models.ToFloat(supplied); ok && isNum && n != 0 {
		perf["scoreCalculated"] = false
	} else if perf.Int("safetyScore") == 0 || perf.Bool("scoreCalculated") {
		perf["safetyScore"] = SafetyScore(perf.Object("scoreBreakdown"))
		perf["scoreCalculated"] = true
	}

	if score, ok := perf.Get("safetyScore"); ok {
		n, _ := models.ToFloat(score)
		doc["safetyGrade"] = SafetyGrade(n)
	}
	doc["complianceStatus"] = complianceBand(perf.Float("ppeCompliance"), perf.Float("housekeeping"), perf.Float("equipmentSafety"))
}

// SafetyScore is the sum of the breakdown's sub-scores over the sum of their
// maxima, as a rounded percentage. Missing maxima take their defaults.
func SafetyScore(breakdown models.Document) int64 {
	var total, max float64
	for _, p := range scoreParts {
		part := breakdown.Object(p.Name)
		m := p.Max
		if part.Has("maxScore") {
			m = part.Float("maxScore")
		}
		total += part.Float("score")
		max += m
	}
	if max <= 0 {
		return 0
	}
	return int64(math.Round(total / max * 100))
}

func SafetyGrade(score float64) string {
	bands := []struct {
		min   float64
		grade string
	}{
		{95, "A+"}, {90, "A"}, {85, "B+"}, {80, "B"}, {75, "C+"}, {70, "C"}, {65, "D+"}, {60, "D"},
	}
	for _, b := range bands {
		if score >= b.min {
			return b.grade
		}
	}
	return "F"
}

func complianceBand(ppe, housekeeping, equipment float64) string {
	low := math.Min(ppe, math.Min(housekeeping, equipment))
	switch {
	case low >= 95:
		return "excellent"
	case low >= 90:
		return "good"
	case low >= 80:
		return "satisfactory"
	}
	return "needs_improvement"
}

func workforceFigures(doc models.Document, env schema.DeriveEnv) {
	ws := doc.Object("workStatistics")
	if ws == nil {
		return
	}
	total := ws.Int("totalWorkers")
	doc["averageHoursPerWorker"] = float64(0)
	if total > 0 {
		doc["averageHoursPerWorker"] = math.Round(float64(ws.Int("manHours"))/float64(total)*100) / 100
	}
	sum := ws.Int("meilEmployees") + ws.Int("subcontractor") + ws.Int("visitors")
	diff := sum - total
	doc["workerCountMismatch"] = diff > 1 || diff < -1
}

// performanceTrends lists the daily performance scores of the last "days"
// days, oldest first.
func performanceTrends(ctx context.Context, rc schema.ReportContext) (any, error) {
	since := rc.Now.AddDate(0, 0, -rc.Int("days", 30, 365))
	docs, err := rc.Find(ctx, []repository.Cond{
		repository.Gte("reportDate", since),
		repository.Lte("reportDate", rc.Now),
	}, []repository.Sort{{Field: "reportDate"}}, 0)
	if err != nil {
		return nil, err
	}
	rows := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		perf := doc.Object("safetyPerformance")
		row := models.Document{
			models.FieldID: doc.ID(),
			"reportId":     doc.String("reportId"),
			"reportDate":   doc["reportDate"],
		}
		for _, f := range []string{"safetyScore", "ppeCompliance", "housekeeping", "equipmentSafety"} {
			if v, ok := perf.Get(f); ok {
				row[f] = v
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
