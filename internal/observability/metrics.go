package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain collectors. Label values are small closed sets (outcomes, decisions,
// template names) so cardinality stays bounded.
var (
	// OTPVerifications counts verification attempts by outcome
	// (approved, invalid, expired, locked_out, no_active_challenge).
	OTPVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "approval",
			Name:      "otp_verifications_total",
			Help:      "OTP verification attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// OTPChallengesIssued counts challenge issuance by result (ok, provider_error).
	OTPChallengesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "approval",
			Name:      "otp_challenges_issued_total",
			Help:      "OTP challenges issued by result.",
		},
		[]string{"result"},
	)

	// Decisions counts decisions applied to approval requests.
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "approval",
			Name:      "decisions_total",
			Help:      "Decisions applied to approval requests.",
		},
		[]string{"decision"},
	)

	// Dispatches counts outbound WhatsApp template sends by template and result.
	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "approval",
			Name:      "whatsapp_dispatch_total",
			Help:      "Outbound WhatsApp template messages by template and result.",
		},
		[]string{"template", "result"},
	)
)

func init() {
	prometheus.MustRegister(OTPVerifications, OTPChallengesIssued, Decisions, Dispatches)
}

// Result renders an error as a metric label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
