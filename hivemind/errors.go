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

import "errors"

// Errors returned by the hivemind. Callers should test for
// them with errors.Is, since they are usually wrapped.
var (
	ErrNotFound             = errors.New("not found")
	ErrDuplicate            = errors.New("duplicate")
	ErrInvalid              = errors.New("invalid input")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrCapacity             = errors.New("entity store at capacity")
	ErrConfirmationRequired = errors.New("confirmation required")
)
