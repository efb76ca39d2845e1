/*
	Madrox
	Copyright (c) 2026 The Madrox Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package hivemind

// Zoom limits for a Viewport.
const (
	MinZoom = 0.1
	MaxZoom = 10
)

// Viewport maps simulation coordinates to screen coordinates.
// It only affects rendering; panning or zooming never changes
// the simulation.
type Viewport struct {
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
	Scale   float64 `json:"scale"`
}

// DefaultViewport is the identity transform.
func DefaultViewport() Viewport { return Viewport{Scale: 1} }

// ToScreen converts a simulation point to screen space.
func (v Viewport) ToScreen(x, y float64) (float64, float64) {
	return x*v.scale() + v.OffsetX, y*v.scale() + v.OffsetY
}

// ToWorld converts a screen point to simulation space.
func (v Viewport) ToWorld(sx, sy float64) (float64, float64) {
	return (sx - v.OffsetX) / v.scale(), (sy - v.OffsetY) / v.scale()
}

// Pan moves the view by (dx, dy) screen pixels.
func (v Viewport) Pan(dx, dy float64) Viewport {
	v.OffsetX += dx
	v.OffsetY += dy
	return v
}

// ZoomAt multiplies the scale by factor, keeping the simulation
// point under the screen point (sx, sy) fixed.
func (v Viewport) ZoomAt(sx, sy, factor float64) Viewport {
	if factor <= 0 {
		return v
	}
	wx, wy := v.ToWorld(sx, sy)
	v.Scale = min(max(v.scale()*factor, MinZoom), MaxZoom)
	v.OffsetX = sx - wx*v.Scale
	v.OffsetY = sy - wy*v.Scale
	return v
}

func (v Viewport) scale() float64 {
	if v.Scale == 0 {
		return 1
	}
	return v.Scale
}
