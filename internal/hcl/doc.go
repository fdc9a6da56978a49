// Package hcl implements config.Loader on top of HCL files.
//
// Concepts live one per file under a directory, named after the concept:
//
//	concept "HeartRate" {
//	  unit        = "Hz"
//	  identifiers = { snomed = "364075005" }
//
//	  mapper "MimicObservationMapper" {
//	    source = "mimiciv"
//	    unit   = "bpm"
//	    params = { table = "chartevents", constraints = { itemid = 220045 } }
//	  }
//	}
//
// Data sources are declared in a single file and may read the environment:
//
//	source "mimiciv" {
//	  connection = env("MIMIC_URL")
//	  chunksize  = 5000
//	}
package hcl
