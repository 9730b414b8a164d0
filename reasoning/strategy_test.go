package reasoning

import "testing"

func TestDecideRefuseOnLowConfidenceNoConflict(t *testing.T) {
	s := Decide(ConfidenceBreakdown{LevelValue: Low}, nil, "standard", false)
	if s != StrategyRefuse {
		t.Errorf("strategy = %s, want refuse", s)
	}
}

func TestDecideConflictOverridesLowWhenHighSeverity(t *testing.T) {
	conflicts := []Conflict{{Severity: SeverityHigh}}
	s := Decide(ConfidenceBreakdown{LevelValue: Low}, conflicts, "standard", false)
	if s != StrategyConflict {
		t.Errorf("strategy = %s, want conflict_presented", s)
	}
}

func TestDecideConflictOnAnyConflict(t *testing.T) {
	conflicts := []Conflict{{Severity: SeverityLow}}
	s := Decide(ConfidenceBreakdown{LevelValue: High}, conflicts, "standard", false)
	if s != StrategyConflict {
		t.Errorf("strategy = %s, want conflict_presented", s)
	}
}

func TestDecideConflictOnDebatePersona(t *testing.T) {
	s := Decide(ConfidenceBreakdown{LevelValue: High}, nil, "debate", false)
	if s != StrategyConflict {
		t.Errorf("strategy = %s, want conflict_presented for debate persona", s)
	}
}

func TestDecideConflictOnDebateRequested(t *testing.T) {
	s := Decide(ConfidenceBreakdown{LevelValue: High}, nil, "standard", true)
	if s != StrategyConflict {
		t.Errorf("strategy = %s, want conflict_presented when debate requested", s)
	}
}

func TestDecideCaveatedOnMedium(t *testing.T) {
	s := Decide(ConfidenceBreakdown{LevelValue: Medium}, nil, "standard", false)
	if s != StrategyCaveated {
		t.Errorf("strategy = %s, want caveated", s)
	}
}

func TestDecideAnswerOnHighNoConflicts(t *testing.T) {
	s := Decide(ConfidenceBreakdown{LevelValue: High}, nil, "standard", false)
	if s != StrategyAnswer {
		t.Errorf("strategy = %s, want answered", s)
	}
}
