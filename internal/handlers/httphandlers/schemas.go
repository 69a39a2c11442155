package httphandlers

type LockDealRequest struct {
	ID string // optional 32-byte hex, generated when empty

	Producer string
	Carrier  string
	Arbiter  string

	ProducerAmount string
	CarrierAmount  string
}

type Deal struct {
	Resource

	ID     string
	Status string

	Buyer    string
	Producer string
	Carrier  string
	Arbiter  string

	ProducerAmount string
	CarrierAmount  string
	Fee            string

	Signatures          Signatures
	ArbiterAcknowledged bool

	CreatedAt string
	SettledAt *string

	Events string
}

type Signatures struct {
	Producer bool
	Carrier  bool
	Buyer    bool
	Mask     string
}

type BalanceResponse struct {
	Address string
	Balance string
}

type TokenRequest struct {
	Address string
}

type TokenResponse struct {
	Address   string
	Token     string
	ExpiresAt string
}

type ConfigResponse struct {
	Version string
	Config  interface{}
}

type Resource struct {
	Self string
}
