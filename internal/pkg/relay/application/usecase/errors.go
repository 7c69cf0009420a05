package usecase

import "fmt"

// ErrPersistence indicates an infrastructure/store failure inside a use case
var ErrPersistence = fmt.Errorf("relay use case persistence error")

// ErrInvalidToken indicates a credential that resolved to nothing: absent,
// expired, already consumed, or bound to an inactive guest/call.
var ErrInvalidToken = fmt.Errorf("relay use case invalid token")
