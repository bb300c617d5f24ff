package jose

// Operation names a transform performed by the jws and jwe engines.
type Operation string

const (
	OperationSign    Operation = "sign"
	OperationVerify  Operation = "verify"
	OperationEncrypt Operation = "encrypt"
	OperationDecrypt Operation = "decrypt"
)

// Observer is notified once per engine call with the algorithm identifier
// that was resolved (possibly empty if parsing failed) and the outcome.
//
// Implementations must be safe for concurrent use.
type Observer interface {
	Observe(op Operation, alg string, err error)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(op Operation, alg string, err error)

// Observe calls f(op, alg, err).
func (f ObserverFunc) Observe(op Operation, alg string, err error) {
	f(op, alg, err)
}

// NopObserver discards all observations.
var NopObserver Observer = ObserverFunc(func(Operation, string, error) {})
