// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package services

import "context"

// Shutdowner is satisfied by *supervisor.Link.
type Shutdowner interface {
	Shutdown(ctx context.Context)
}

// LinkService stops every connection supervisor when the process tree
// shuts down.
type LinkService struct {
	link Shutdowner
}

// NewLinkService wraps link.
func NewLinkService(link Shutdowner) *LinkService {
	return &LinkService{link: link}
}

// Serve implements suture.Service.
func (s *LinkService) Serve(ctx context.Context) error {
	<-ctx.Done()
	s.link.Shutdown(context.WithoutCancel(ctx))
	return ctx.Err()
}

// String implements fmt.Stringer for suture logs.
func (s *LinkService) String() string {
	return "connection-link"
}
