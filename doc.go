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

// Package lua implements the core of a Lua 5.1.5-compatible interpreter:
// tagged values and string interning, an incremental tri-color
// mark-and-sweep garbage collector, the hybrid array/hash table, function
// prototypes and closures with open/closed upvalues, the register-based
// bytecode virtual machine, a cooperative coroutine scheduler, and
// pcall/xpcall/error semantics. The lexer, parser, code generator, and the
// bulk of the standard library are out of scope; this package consumes the
// binary function-prototype format a compiler would emit (see loader.go)
// and executes it.
package lua
