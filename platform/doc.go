// Package platform defines the environment-facing allocation surface and
// shared bookkeeping for implementations of it.
//
// A [Platform] supplies physical frames under an [AllocationPolicy] and is
// alignment-unaware. [AllocateFramesAligned] layers arbitrary power-of-two
// alignment on top of any Platform by over-allocating and trimming the
// slack.
//
// [FrameAllocation] and [AllocationList] are the bookkeeping primitives
// platform implementations use to track what they have handed out, so a
// takeover can tear everything down and so frees can be validated against
// the original requests.
package platform
