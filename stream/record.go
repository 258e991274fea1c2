package stream

// Record is one buffered telemetry point. It is a sealed union of
// Scalar2D and FlightSample; records are immutable once constructed.
type Record interface {
	// Plot2D returns the record's 2-D projection for plotting.
	Plot2D() (x, y float64)

	isRecord()
}

// Scalar2D is a single (x, y) point on a scalar channel, where x is the
// worker-supplied timestamp and y the sampled value.
type Scalar2D struct {
	X float64
	Y float64
}

// Plot2D returns the point itself.
func (s Scalar2D) Plot2D() (float64, float64) { return s.X, s.Y }

func (Scalar2D) isRecord() {}

// FlightSample is a full six-degree flight telemetry point.
type FlightSample struct {
	Lat   float64
	Lon   float64
	Alt   float64
	Pitch float64
	Roll  float64
	Yaw   float64
}

// Plot2D projects the sample onto its position coordinates.
func (f FlightSample) Plot2D() (float64, float64) { return f.Lat, f.Lon }

func (FlightSample) isRecord() {}

// recordFor converts a wire message into the Record variant for its stream.
func recordFor(d Data) Record {
	if d.StreamID == FlightPositionStream {
		return FlightSample{
			Lat:   d.RelLat,
			Lon:   d.RelLon,
			Alt:   d.Altitude,
			Pitch: d.Pitch,
			Roll:  d.Roll,
			Yaw:   d.Yaw,
		}
	}
	return Scalar2D{X: d.Timestamp, Y: d.Value}
}

// capacityFor returns the buffer capacity for a stream id.
func capacityFor(streamID string) int {
	if streamID == FlightPositionStream {
		return MaxFlightPoints
	}
	return MaxChannelPoints
}
