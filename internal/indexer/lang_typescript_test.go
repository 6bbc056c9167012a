package indexer

import "testing"

func TestTypeScriptParser_ExtractsInterfaceClassAndImport(t *testing.T) {
	src := []byte(`
import { helper } from "./util";
import React from "react";

interface Greeting {
  text: string;
}

class Greeter {
  greet(name: string): string {
    return helper(name);
  }
}
`)

	res, err := NewTypeScriptParser().Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var sawInterface, sawClass, sawMethod bool
	for _, sym := range res.Symbols {
		switch {
		case sym.Name == "Greeting" && sym.SymbolType == "interface":
			sawInterface = true
		case sym.Name == "Greeter" && sym.SymbolType == "class":
			sawClass = true
		case sym.QualifiedName == "Greeter.greet":
			sawMethod = true
		}
	}
	if !sawInterface || !sawClass || !sawMethod {
		t.Fatalf("missing expected symbols: %+v", res.Symbols)
	}

	var sawRelative, sawExternal bool
	for _, imp := range res.Imports {
		if imp.ImportPath == "./util" && !imp.IsExternal {
			sawRelative = true
		}
		if imp.ImportPath == "react" && imp.IsExternal {
			sawExternal = true
		}
	}
	if !sawRelative || !sawExternal {
		t.Fatalf("missing expected imports: %+v", res.Imports)
	}
}

func TestJavaScriptParser_ExtractsArrowFunctionAssignedToConst(t *testing.T) {
	src := []byte(`
const add = (a, b) => {
  return a + b;
};
`)
	res, err := NewJavaScriptParser().Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var found bool
	for _, sym := range res.Symbols {
		if sym.Name == "add" && sym.SymbolType == "function" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected to find const arrow function 'add': %+v", res.Symbols)
	}
}

func TestJavaScriptParser_FiltersBuiltinCalls(t *testing.T) {
	src := []byte(`
function run() {
  console.log("hi");
  doWork();
}
`)
	res, err := NewJavaScriptParser().Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var sawDoWork bool
	for _, c := range res.Calls {
		if c.CalleeName == "log" {
			t.Fatal("builtin console.log call should have been filtered")
		}
		if c.CalleeName == "doWork" {
			sawDoWork = true
		}
	}
	if !sawDoWork {
		t.Fatalf("expected doWork call, got %+v", res.Calls)
	}
}
