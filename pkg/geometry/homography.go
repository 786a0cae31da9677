package geometry

// Homography represents a 3x3 projective transformation matrix.
// [h0 h1 h2]
// [h3 h4 h5]
// [h6 h7 h8]
type Homography [9]float64

// IdentityHomography returns the identity transform.
func IdentityHomography() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Apply maps a point through the transform. Points on the line at infinity
// (w == 0) are returned unchanged with ok == false.
func (h Homography) Apply(p Point2D) (Point2D, bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if w == 0 {
		return p, false
	}
	return Point2D{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// ToMatrix returns the transform as a row-major [3][3]float64 array.
func (h Homography) ToMatrix() [3][3]float64 {
	return [3][3]float64{
		{h[0], h[1], h[2]},
		{h[3], h[4], h[5]},
		{h[6], h[7], h[8]},
	}
}
