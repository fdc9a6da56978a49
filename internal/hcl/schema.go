package hcl

import "github.com/hashicorp/hcl/v2"

type conceptFile struct {
	Concepts []*conceptBlock `hcl:"concept,block"`
}

type conceptBlock struct {
	Name        string            `hcl:"name,label"`
	Description string            `hcl:"description,optional"`
	Unit        string            `hcl:"unit,optional"`
	Identifiers map[string]string `hcl:"identifiers,optional"`
	Requires    []string          `hcl:"requires,optional"`
	Mappers     []*mapperBlock    `hcl:"mapper,block"`
}

type mapperBlock struct {
	Class  string `hcl:"class,label"`
	Source string `hcl:"source"`
	Unit   string `hcl:"unit,optional"`
	// Params is evaluated lazily; its shape is only known to the mapper.
	Params hcl.Expression `hcl:"params,optional"`
}

type sourcesFile struct {
	Sources []*sourceBlock `hcl:"source,block"`
}

type sourceBlock struct {
	Name       string `hcl:"name,label"`
	Connection string `hcl:"connection"`
	Chunksize  *int   `hcl:"chunksize,optional"`
	Limit      *int   `hcl:"limit,optional"`
}
