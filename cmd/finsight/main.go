// Command finsight answers financial questions with a team of research agents.
package main

func main() {
	Execute()
}
