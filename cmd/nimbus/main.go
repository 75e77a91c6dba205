// Command nimbus runs the autonomous project lifecycle loop.
package main

func main() {
	Execute()
}
