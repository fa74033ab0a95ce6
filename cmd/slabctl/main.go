// Command slabctl drives the record storages outside a renderer: it runs
// synthetic workloads and reports allocator, index and upload statistics.
package main

func main() {
	execute()
}
