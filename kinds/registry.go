package kinds

import "hseproject/schema"

// Route binds a kind to its API base path.
type Route struct {
	Path string
	Kind *schema.Kind
}

// All returns every record kind with its base path under /api.
func All() []Route {
	return []Route{
		{"/api/near-miss", NearMiss()},
		{"/api/dangerous-occurrence", DangerousOccurrence()},
		{"/api/stop-work-order", StopWorkOrder()},
		{"/api/incident-report", IncidentReport()},
		{"/api/first-aid", FirstAid()},
		{"/api/safety-observations", SafetyObservation()},
		{"/api/daily-briefing", DailyBriefing()},
		{"/api/daily-training", DailyTraining()},
		{"/api/pep-talk", PEPTalk()},
		{"/api/special-training", SpecialTraining()},
		{"/api/induction-training", InductionTraining()},
		{"/api/safety-advisory-warning", SafetyAdvisoryWarning()},
		{"/api/site-inspection/categories", InspectionCategory()},
		{"/api/site-inspection/results", InspectionResult()},
		{"/api/sic-meeting", SICMeeting()},
		{"/api/ppe-compliance", PPECompliance()},
		{"/api/good-practice", GoodPractice()},
		{"/api/end-of-day-report", EndOfDayReport()},
	}
}

// Lookup finds a kind by name.
func Lookup(name string) (*schema.Kind, bool) {
	for _, r := range All() {
		if r.Kind.Name == name {
			return r.Kind, true
		}
	}
	return nil, false
}
