package kinds

import (
	"strings"
	"testing"
	"time"

	"hseproject/models"
	"hseproject/schema"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func TestRegistry(t *testing.T) {
	routes := All()
	if len(routes) != 18 {
		t.Fatalf("registered %d kinds, want 18", len(routes))
	}
	names, collections, paths := map[string]bool{}, map[string]bool{}, map[string]bool{}
	for _, r := range routes {
		k := r.Kind
		if names[k.Name] || collections[k.Collection] || paths[r.Path] {
			t.Errorf("%s: name, collection or path registered twice", k.Name)
		}
		names[k.Name], collections[k.Collection], paths[r.Path] = true, true, true

		if !strings.HasPrefix(r.Path, "/api/") {
			t.Errorf("%s: path %q", k.Name, r.Path)
		}
		lc := k.Lifecycle
		if !lc.Valid(lc.Initial) {
			t.Errorf("%s: initial state %q is not a state", k.Name, lc.Initial)
		}
		if lc.HasDraft() && !lc.Valid(lc.Draft) {
			t.Errorf("%s: draft state %q is not a state", k.Name, lc.Draft)
		}
		for _, s := range lc.Entry {
			if !lc.Valid(s) {
				t.Errorf("%s: entry state %q is not a state", k.Name, s)
			}
		}
		seen := map[string]bool{}
		for _, a := range lc.Actions {
			if seen[a.Name] {
				t.Errorf("%s: action %q declared twice", k.Name, a.Name)
			}
			seen[a.Name] = true
			if a.To != "" && !lc.Valid(a.To) {
				t.Errorf("%s: action %q targets unknown state %q", k.Name, a.Name, a.To)
			}
			for _, from := range a.From {
				if !lc.Valid(from) {
					t.Errorf("%s: action %q starts from unknown state %q", k.Name, a.Name, from)
				}
			}
		}
		if k.HumanID != nil && k.HumanID.Generate(now, func(int) int { return 1 }) == "" {
			t.Errorf("%s: empty generated id", k.Name)
		}
		reports := map[string]bool{}
		for _, rep := range k.Reports {
			if reports[rep.Path] || rep.Path == "" || rep.Path == "stats/overview" || strings.Count(rep.Path, "/") > 1 {
				t.Errorf("%s: report path %q", k.Name, rep.Path)
			}
			reports[rep.Path] = true
		}
	}

	if k, ok := Lookup("near-miss"); !ok || k.Collection != "near_misses" {
		t.Errorf("Lookup(near-miss) = %v, %v", k, ok)
	}
	if _, ok := Lookup("nope"); ok {
		t.Error("Lookup found an unknown kind")
	}
}

func TestHumanIDFormats(t *testing.T) {
	tests := []struct {
		kind *schema.Kind
		want string
	}{
		{IncidentReport(), "INC-2026-0042"},
		{DailyBriefing(), "TBT-2026-042"},
		{EndOfDayReport(), "DR-2026-0310-042"},
	}
	for _, tt := range tests {
		if got := tt.kind.HumanID.Generate(now, func(int) int { return 42 }); got != tt.want {
			t.Errorf("%s: id = %q, want %q", tt.kind.Name, got, tt.want)
		}
	}
}

func TestInspectionStatistics(t *testing.T) {
	items := func(statuses ...string) []models.Document {
		out := make([]models.Document, 0, len(statuses))
		for i, s := range statuses {
			out = append(out, models.Document{"itemId": string(rune('a' + i)), "status": s})
		}
		return out
	}
	tests := []struct {
		name    string
		status  string
		results []models.Document
		pct     int64
		want    string
	}{
		{"failure needs action", InspectionInProgress, items("pass", "pass", "fail", "na"), 50, InspectionNeedsAction},
		{"all passed completes", InspectionInProgress, items("pass", "na"), 50, InspectionCompleted},
		{"draft keeps status", InspectionDraft, items("fail"), 0, InspectionDraft},
		{"closed keeps status", InspectionClosed, items("fail"), 0, InspectionClosed},
		{"no items", InspectionInProgress, nil, 0, InspectionInProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := models.Document{"overallStatus": tt.status}
			if tt.results != nil {
				doc["itemResults"] = tt.results
			}
			inspectionStatistics(doc, schema.DeriveEnv{Now: now})
			if doc.Int("passPercentage") != tt.pct || doc.String("overallStatus") != tt.want {
				t.Errorf("pct = %d, status = %q", doc.Int("passPercentage"), doc.String("overallStatus"))
			}
			if doc.Int("totalItems") != int64(len(tt.results)) {
				t.Errorf("totalItems = %d", doc.Int("totalItems"))
			}
		})
	}

	doc := models.Document{"overallStatus": InspectionInProgress, "itemResults": items("pass", "pass", "fail", "na")}
	inspectionStatistics(doc, schema.DeriveEnv{Now: now})
	if doc.Int("passCount") != 2 || doc.Int("failCount") != 1 || doc.Int("naCount") != 1 {
		t.Errorf("counts = %d/%d/%d", doc.Int("passCount"), doc.Int("failCount"), doc.Int("naCount"))
	}
}

func TestComplianceLabel(t *testing.T) {
	for rate, want := range map[int64]string{100: "excellent", 90: "excellent", 89: "good", 75: "good", 74: "fair", 60: "fair", 59: "poor", 0: "poor"} {
		if got := complianceLabel(rate); got != want {
			t.Errorf("complianceLabel(%d) = %q, want %q", rate, got, want)
		}
	}
}

func TestPPEComplianceRates(t *testing.T) {
	quick := models.Document{"status": PPECompleted, "workersCount": int64(20), "compliantCount": int64(14)}
	ppeComplianceRates(quick, schema.DeriveEnv{Now: now})
	if quick.Int("effectiveComplianceRate") != 70 || quick.String("complianceStatus") != "fair" || quick.String("status") != PPEActionRequired {
		t.Errorf("quick = %v", quick)
	}

	detailed := models.Document{
		"status": PPEActionRequired,
		"mode":   "detailed",
		"workerAudits": []models.Document{
			{"ppeItems": []models.Document{{"compliant": true}, {"compliant": true}}},
			{"compliant": true},
		},
	}
	ppeComplianceRates(detailed, schema.DeriveEnv{Now: now})
	if detailed.Int("overallComplianceRate") != 100 || detailed.String("status") != PPECompleted {
		t.Errorf("detailed = %v", detailed)
	}
	if rate, ok := effectiveRate(models.Document{"mode": "detailed"}); ok {
		t.Errorf("effectiveRate with nothing audited = %d", rate)
	}

	draft := models.Document{"status": PPEDraft, "workersCount": int64(10), "compliantCount": int64(1)}
	ppeComplianceRates(draft, schema.DeriveEnv{Now: now})
	if draft.String("status") != PPEDraft || draft.String("complianceStatus") != "poor" {
		t.Errorf("draft = %v", draft)
	}
}

func TestSafetyScoreAndGrade(t *testing.T) {
	breakdown := models.Document{
		"briefingCompletion": models.Document{"score": 20.0},
		"inspectionQuality":  models.Document{"score": 20.0},
		"ppeCompliance":      models.Document{"score": 18.0},
		"observationsLogged": models.Document{"score": 10.0},
		"zeroIncidents":      models.Document{"score": 20.0, "maxScore": 20.0},
	}
	if got := SafetyScore(breakdown); got != 88 {
		t.Errorf("SafetyScore = %d, want 88", got)
	}
	if got := SafetyScore(nil); got != 0 {
		t.Errorf("SafetyScore(nil) = %d", got)
	}
	for score, want := range map[float64]string{100: "A+", 95: "A+", 94.9: "A", 88: "B+", 80: "B", 76: "C+", 70: "C", 65: "D+", 60: "D", 59: "F"} {
		if got := SafetyGrade(score); got != want {
			t.Errorf("SafetyGrade(%v) = %q, want %q", score, got, want)
		}
	}
}

func TestCompositeSafetyScore(t *testing.T) {
	breakdown := models.Document{"briefingCompletion": models.Document{"score": 20.0}}
	doc := models.Document{"safetyPerformance": models.Document{"scoreBreakdown": breakdown}}
	compositeSafetyScore(doc, schema.DeriveEnv{Now: now, Input: models.Document{}})
	perf := doc.Object("safetyPerformance")
	if perf.Int("safetyScore") != 20 || !perf.Bool("scoreCalculated") || doc.String("safetyGrade") != "F" {
		t.Errorf("calculated = %v", doc)
	}

	breakdown["inspectionQuality"] = models.Document{"score": 25.0}
	compositeSafetyScore(doc, schema.DeriveEnv{Now: now, Input: models.Document{}})
	if perf.Int("safetyScore") != 45 {
		t.Errorf("recalculated score = %d", perf.Int("safetyScore"))
	}

	input := models.Document{"safetyPerformance": models.Document{"safetyScore": 92}}
	perf["safetyScore"] = 92.0
	compositeSafetyScore(doc, schema.DeriveEnv{Now: now, Input: input})
	if perf.Int("safetyScore") != 92 || perf.Bool("scoreCalculated") || doc.String("safetyGrade") != "A" {
		t.Errorf("supplied = %v", doc)
	}
}

func TestExpireWarning(t *testing.T) {
	doc := models.Document{"status": WarningActive, "validityTo": now.Add(36 * time.Hour)}
	expireWarning(doc, now)
	if doc.String("status") != WarningActive || doc.Int("daysUntilExpiry") != 2 {
		t.Errorf("before expiry = %v", doc)
	}
	expireWarning(doc, now.Add(48*time.Hour))
	if doc.String("status") != WarningExpired {
		t.Errorf("after expiry = %v", doc)
	}

	resolved := models.Document{"status": WarningResolved, "validityTo": now.Add(-time.Hour)}
	expireWarning(resolved, now)
	if resolved.String("status") != WarningResolved {
		t.Errorf("resolved warning changed to %q", resolved.String("status"))
	}
	open := models.Document{"status": WarningActive}
	expireWarning(open, now)
	if open.String("status") != WarningActive || open.Has("daysUntilExpiry") {
		t.Errorf("open-ended warning = %v", open)
	}
}

func TestAcknowledge(t *testing.T) {
	doc := models.Document{}
	ann := models.Actor{ID: "u1", Name: "Ann"}
	acknowledge(doc, ann, "seen", now)
	acknowledge(doc, models.Actor{ID: "u2"}, "", now)
	acknowledge(doc, ann, "seen again", now.Add(time.Hour))

	acks := doc.Objects("acknowledgedBy")
	if len(acks) != 2 {
		t.Fatalf("acknowledgedBy = %v", acks)
	}
	if acks[0].String("notes") != "seen again" || acks[0].String("userName") != "Ann" {
		t.Errorf("first entry = %v", acks[0])
	}
	if at, _ := acks[0].Time("acknowledgedAt"); !at.Equal(now.Add(time.Hour)) {
		t.Errorf("acknowledgedAt = %v", at)
	}
}

func TestDerivePriority(t *testing.T) {
	tests := []struct {
		typ, sev    string
		priority    string
		investigate bool
	}{
		{"lti", "low", "critical", true},
		{"first_aid", "high", "critical", true},
		{"medical", "low", "high", true},
		{"near_miss", "medium", "high", false},
		{"property", "low", "normal", true},
		{"environmental", "", "normal", false},
	}
	for _, tt := range tests {
		doc := models.Document{"incidentType": tt.typ, "severity": tt.sev}
		derivePriority(doc, schema.DeriveEnv{})
		if doc.String("priorityLevel") != tt.priority || doc.Bool("requiresInvestigation") != tt.investigate {
			t.Errorf("%s/%s: priority %q, investigate %v", tt.typ, tt.sev, doc.String("priorityLevel"), doc.Bool("requiresInvestigation"))
		}
	}
}
