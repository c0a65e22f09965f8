package script

import "math"

// InterpolateKeyframes returns yaw and pitch at time t. Before the first and
// after the last keyframe the nearest keyframe holds. Yaw takes the short way
// around the circle.
func InterpolateKeyframes(keyframes []Keyframe, t float64) (yaw, pitch float64) {
	if len(keyframes) == 0 {
		return 0, 0
	}

	if t <= keyframes[0].Time {
		return keyframes[0].Yaw, keyframes[0].Pitch
	}

	last := keyframes[len(keyframes)-1]
	if t >= last.Time {
		return last.Yaw, last.Pitch
	}

	var prev, next Keyframe
	for i := 0; i < len(keyframes)-1; i++ {
		if t >= keyframes[i].Time && t < keyframes[i+1].Time {
			prev, next = keyframes[i], keyframes[i+1]
			break
		}
	}

	span := next.Time - prev.Time
	if span == 0 {
		span = 0.001
	}
	f := easeInOutCubic((t - prev.Time) / span)

	return lerpAngle(prev.Yaw, next.Yaw, f), lerp(prev.Pitch, next.Pitch, f)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func lerpAngle(a, b, t float64) float64 {
	delta := math.Mod(b-a+540, 360) - 180
	return a + delta*t
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}
