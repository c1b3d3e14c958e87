// alloctl verifies kernel allocator trace captures: it replays page and slab
// allocator events from a console log and reports every invariant violation
// it can observe, plus leak candidates and allocation statistics.
package main

func main() {
	execute()
}
