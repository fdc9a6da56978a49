// Package unit converts canonical quantities between units of one physical
// family. Every conversion goes through the family's SI unit: the source
// value is first brought to SI and then expressed in the target unit.
//
// Families are registered explicitly and in order; Registry.Select returns
// the first family that knows the requested target unit.
package unit
