// Package ui provides the Bubble Tea front end for sluice.
//
// The pipeline list and the detail pane are each backed by a lifecycle
// coordinator. Their hosts forward callbacks to the program as messages, so
// all view state is only touched from the Bubble Tea loop. The problems view
// mirrors the coordinators' local error stores.
package ui
