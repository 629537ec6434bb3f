// Package template defines renderer-agnostic template interfaces and
// adapters. Renderers depend only on the TemplateRenderer interface so the
// underlying engine can be swapped without touching form logic.
package template
