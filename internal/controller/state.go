package controller

// state is the controller's current phase. Each variant carries only the
// trades that are meaningful in that phase, so an impossible combination
// (e.g. an opening trade while idle) cannot be represented.
type state interface {
	name() string
}

// stateNoActiveTrades: nothing open, nothing scaling.
type stateNoActiveTrades struct{}

// stateScalingIn: one trade being built up incrementally.
type stateScalingIn struct {
	opening *Trade
}

// stateActiveTrade: fully deployed trades under monitoring.
type stateActiveTrade struct {
	active []*Trade
}

// stateScalingOut: one trade being unwound; any other settled trades stay
// under monitoring.
type stateScalingOut struct {
	closing *Trade
	active  []*Trade
}

// stateSwappingTrade: an incoming trade scaling in while the outgoing one
// scales out.
type stateSwappingTrade struct {
	opening *Trade
	closing *Trade
}

func (stateNoActiveTrades) name() string { return "NO_ACTIVE_TRADES" }
func (stateScalingIn) name() string      { return "SCALING_IN" }
func (stateActiveTrade) name() string    { return "ACTIVE_TRADE" }
func (stateScalingOut) name() string     { return "SCALING_OUT" }
func (stateSwappingTrade) name() string  { return "SWAPPING_TRADE" }

// trades returns every trade the state knows about, opening first.
func stateTrades(s state) []*Trade {
	switch st := s.(type) {
	case stateScalingIn:
		return []*Trade{st.opening}
	case stateActiveTrade:
		return st.active
	case stateScalingOut:
		return append([]*Trade{st.closing}, st.active...)
	case stateSwappingTrade:
		return []*Trade{st.opening, st.closing}
	default:
		return nil
	}
}
