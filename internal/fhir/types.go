package fhir

import "time"

type Reference struct {
	Reference string `json:"reference"`
	Type      string `json:"type"`
}

type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Coding struct {
	Code   string `json:"code"`
	System string `json:"system"`
}

type CodeableConcept struct {
	Coding Coding `json:"coding"`
}

type CodeableReference struct {
	Concept CodeableConcept `json:"concept"`
}

// Dosage describes an administered dose and the rate it was given at.
type Dosage struct {
	DoseQuantity Quantity `json:"dose_quantity"`
	RateQuantity Quantity `json:"rate_quantity"`
}

// NewCodeableConcept builds a concept with a single coding.
func NewCodeableConcept(system, code string) CodeableConcept {
	return CodeableConcept{Coding: Coding{Code: code, System: system}}
}
