// Package model defines the entities tracked during a compression run - Job,
// Video, Task and ResourceSample - together with their state machines and
// the quality profile catalogue. All mutation happens on the scheduler
// control loop; everything handed outside the loop is a Clone.
package model
