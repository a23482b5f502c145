package judge

// Decision is the judge's verdict. It is a closed sum: a trade is either
// Approved with a size or Rejected with a reason, so callers cannot read a
// size off a rejection.
type Decision interface {
	Reason() string
	isDecision()
}

// Approved carries the order size in quote currency (USDT). For SELL
// approvals Size is 0 because the executor uses the position's quantity.
type Approved struct {
	Size       float64
	ReasonText string
}

func (a Approved) Reason() string { return a.ReasonText }
func (Approved) isDecision()      {}

// Rejected carries only the reason the guard fired.
type Rejected struct {
	ReasonText string
}

func (r Rejected) Reason() string { return r.ReasonText }
func (Rejected) isDecision()      {}
