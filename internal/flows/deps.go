package flows

// Deps groups the dependency sets the engine assembles once at build time.
// Per-call values are copied into each Run function by value.
type Deps struct {
	Request RequestResetDeps
	Redeem  RedeemTokenDeps
	Check   CheckTokenDeps
}
