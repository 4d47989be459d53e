// Package logx is a thin structured-logging layer over zerolog.
//
// It exists so the rest of the codebase can log through a small, stable
// API (Logger + Field helpers) while sink configuration (console, file,
// levels) stays swappable at runtime via Service.Apply.
//
// The zero value of Logger is a safe no-op.
package logx
