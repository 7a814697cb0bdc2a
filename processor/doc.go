// Package processor finds entitybug annotations in Go sources and hands them
// to processors.
//
// A processor is a function with this signature:
//
//    func(ctx *processor.Context, output processor.OutputFactory) error
//
// It is called once per loaded package. The Context lists the package's
// annotated types and their annotations. Processors typically check the
// annotation values and write generated code through output, naming each file
// by import path and file name. Problems that can be traced to a place in the
// sources should be returned as an *ErrorWithPosition.
//
// Registration
//
// The generator registers itself with RegisterProcessor, and commands run
// AllRegisteredProcessors through a Config. A Config can also name its
// processors explicitly.
//
// Loading
//
// Config.Execute loads packages with golang.org/x/tools/go/packages and reads
// the doc comments of top-level declarations. Annotations can only be put on
// types. Only annotations of the entitybug package are considered, and the
// "entitybug" qualifier works without an import since an import used only in
// comments would not compile.
//
// Mirrors
//
// An AnnotationMirror is a parsed annotation whose value has not been turned
// into its Go type yet. Each part of its AnnotationValue remembers its source
// position, so Reify can report conversion errors precisely.
package processor
