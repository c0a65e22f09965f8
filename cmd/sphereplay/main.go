// Command sphereplay runs the 360° playback engine headless: scripted viewing
// sessions, frame thumbnails and media probing.
package main

func main() {
	execute()
}
