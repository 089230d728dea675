// Command nmoesisim builds a coherent cache hierarchy, runs a synthetic
// workload on it and reports what happened.
package main

func main() {
	Execute()
}
