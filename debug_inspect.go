// Copyright 2024 The ProbeLua Authors
// This file is part of the ProbeLua interpreter.
//
// ProbeLua is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ProbeLua is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with ProbeLua. If not, see <http://www.gnu.org/licenses/>.

package lua

import "github.com/davecgh/go-spew/spew"

var inspectConfig = spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisablePointerAddresses: true,
	MaxDepth:                6,
}

// spewInspect dumps an arbitrary boxed ref payload (table, closure, userdata,
// coroutine) for debug output. Depth-limited and pointer-address-free so
// output is stable across runs, which matters for traceback snapshot tests.
func spewInspect(ref any) string {
	return inspectConfig.Sdump(ref)
}
