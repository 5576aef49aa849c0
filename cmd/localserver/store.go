package main

import "github.com/matst80/dataview-sample/pkg/types"

type localStore interface {
	types.RemoteStore
	Namespaces() []string
}
