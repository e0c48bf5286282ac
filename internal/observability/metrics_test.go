package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDomainCollectors_Registered(t *testing.T) {
	for name, c := range map[string]prometheus.Collector{
		"verifications": OTPVerifications,
		"issued":        OTPChallengesIssued,
		"decisions":     Decisions,
		"dispatches":    Dispatches,
	} {
		if err := prometheus.Register(c); err == nil {
			t.Fatalf("%s collector was not registered by init", name)
		} else if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			t.Fatalf("%s: unexpected register error %v", name, err)
		}
	}
}

func TestDecisions_Increment(t *testing.T) {
	before := testutil.ToFloat64(Decisions.WithLabelValues("APPROVED"))
	Decisions.WithLabelValues("APPROVED").Inc()
	if got := testutil.ToFloat64(Decisions.WithLabelValues("APPROVED")); got != before+1 {
		t.Fatalf("decisions_total = %v, want %v", got, before+1)
	}
}

func TestResult(t *testing.T) {
	if Result(nil) != "ok" || Result(errors.New("x")) != "error" {
		t.Fatalf("Result labels unexpected")
	}
}
