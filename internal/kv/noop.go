package kv

import "context"

// Noop es el storage de un contexto sin persistencia: nada se guarda y nada falla.
type Noop struct{}

func (Noop) Get(context.Context, string) (string, error) { return "", ErrNotFound }
func (Noop) Set(context.Context, string, string) error   { return nil }
func (Noop) Delete(context.Context, string) error        { return nil }
func (Noop) Ping(context.Context) error                  { return nil }
func (Noop) Close() error                                { return nil }
func (Noop) Driver() string                              { return "none" }
