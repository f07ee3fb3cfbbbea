// Package scheduler owns mission lifecycle: admission into a bounded number
// of download slots, FIFO promotion of waiting missions, user controls, and
// the application of transfer events to the mission store.
//
// Every state change flows through UpdateMission or a control method holding
// the mission's keyed lock. The admission mutex is always taken first.
package scheduler
