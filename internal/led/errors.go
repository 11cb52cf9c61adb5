package led

import "fmt"

// RangeError reports a conversion result that does not fit in the
// hardware's range: a grayscale value outside 0..MaxGrayscale, or a
// dot correction above MaxDotCorrection. It means the requested
// intensity is not reachable with the given settings.
type RangeError struct {
	What  string // "grayscale" or "dot correction"
	Limit int
	Well  int // well index of the first offending value
	Value float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("requested intensity not reachable: %s %.0f for well %d outside 0..%d",
		e.What, e.Value, e.Well, e.Limit)
}
