// Package logx is a thin structured-logging layer over zerolog.
//
// It keeps call sites free of zerolog types: loggers take variadic Field
// values, and the zero Logger is a safe no-op.
package logx
