package mouth

// Viseme is a discrete mouth-shape category used to drive a simplified
// animation from a continuous opening percentage. The values are the wire
// names the visualizer expects.
type Viseme string

const (
	VisemeClosed     Viseme = "CLOSED"
	VisemeNarrow     Viseme = "NARROW"
	VisemeRounded    Viseme = "ROUNDED"
	VisemeMedium     Viseme = "MEDIUM"
	VisemeMediumOpen Viseme = "MEDIUM_OPEN"
	VisemeWide       Viseme = "WIDE"
)

// VisemeFor classifies an opening percentage. Pure and deterministic:
// the animation layer depends on this exact ladder.
func VisemeFor(opening float64) Viseme {
	switch {
	case opening < 5:
		return VisemeClosed
	case opening < 20:
		return VisemeNarrow
	case opening < 35:
		return VisemeRounded
	case opening < 50:
		return VisemeMedium
	case opening < 70:
		return VisemeMediumOpen
	default:
		return VisemeWide
	}
}
