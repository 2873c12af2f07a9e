package analytics

const (
	bullishPCR = 1.3
	bearishPCR = 0.8

	strongBuildVolume = 200000
	buildVolume       = 50000
	coveringVolume    = 50000
)

// Trend is the PCR based market bias.
type Trend string

const (
	TrendBullish Trend = "Bullish"
	TrendBearish Trend = "Bearish"
	TrendNeutral Trend = "Neutral"
)

// ClassifyPCR maps a put-call ratio to a trend.
func ClassifyPCR(pcr float64) Trend {
	switch {
	case pcr > bullishPCR:
		return TrendBullish
	case pcr < bearishPCR:
		return TrendBearish
	default:
		return TrendNeutral
	}
}

// Display is the decorated label used by the console and dashboard.
func (t Trend) Display() string {
	switch t {
	case TrendBullish:
		return "📈 Bullish"
	case TrendBearish:
		return "📉 Bearish"
	default:
		return "➖ Neutral"
	}
}

// Direction is the final call derived from premium buying and writing.
type Direction string

const (
	DirectionUp       Direction = "Up"
	DirectionDown     Direction = "Down"
	DirectionSideways Direction = "Sideways"
)

// ClassifyDirection needs buyers and writers to agree. Call buyers ahead
// with put writers ahead is Up, the mirror image is Down, anything else
// (disagreement or ties) is Sideways.
func ClassifyDirection(cePower, pePower float64, ceWrite, peWrite int64) Direction {
	switch {
	case cePower > pePower && peWrite > ceWrite:
		return DirectionUp
	case pePower > cePower && ceWrite > peWrite:
		return DirectionDown
	default:
		return DirectionSideways
	}
}

func (d Direction) Display() string {
	switch d {
	case DirectionUp:
		return "📈 UP (Buyers Strong + Put Writers Strong)"
	case DirectionDown:
		return "📉 DOWN (Put Buyers Strong + Call Writers Strong)"
	default:
		return "➖ Sideways (Fight between writers & buyers)"
	}
}

// Activity annotates one side of one strike for display. It never feeds the
// trend classifiers.
type Activity string

const (
	ActivityStrongLongBuildUp Activity = "Strong Long Build-up"
	ActivityLongBuildUp       Activity = "Long Build-up"
	ActivityMildLongBuildUp   Activity = "Mild Long Build-up"
	ActivityShortCovering     Activity = "Short Covering"
	ActivityNeutral           Activity = "Neutral"
)

// Interpret labels a side from its volume and OI change. Order matters.
func Interpret(volume, oiChange int64) Activity {
	switch {
	case oiChange > 0 && volume > strongBuildVolume:
		return ActivityStrongLongBuildUp
	case oiChange > 0 && volume > buildVolume:
		return ActivityLongBuildUp
	case oiChange > 0:
		return ActivityMildLongBuildUp
	case oiChange < 0 && volume > coveringVolume:
		return ActivityShortCovering
	default:
		return ActivityNeutral
	}
}

func (a Activity) Display() string {
	switch a {
	case ActivityStrongLongBuildUp:
		return "🔥🔥🔥 " + string(a)
	case ActivityLongBuildUp:
		return "🔥🔥 " + string(a)
	case ActivityMildLongBuildUp:
		return "🔥 " + string(a)
	case ActivityShortCovering:
		return "⚪ " + string(a)
	default:
		return string(ActivityNeutral)
	}
}
