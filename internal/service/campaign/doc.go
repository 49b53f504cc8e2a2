// Package campaign implements campaign lifecycle management.
//
// The service layer owns the draft → scheduled → sending → sent state
// machine, dispatch (audience resolution plus send-ledger fan-out), and the
// audit trail. It depends on repository interfaces defined in this package
// and should never import from api/.
//
// Repository implementations live in repository/postgres/.
package campaign
