package controller

import "github.com/sweeney/reflowd/internal/profile"

var _ profile.ControllerHandle = (*Controller)(nil)
