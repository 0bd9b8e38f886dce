// Package domain contains the core domain types of the answer-sheet
// processing pipeline. Types here have no dependencies on persistence or
// external services; they enforce their own invariants through constructors
// and transition methods.
package domain
