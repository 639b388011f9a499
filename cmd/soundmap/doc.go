// Command soundmap runs the detection relay, the headset placement loop
// and offline scene replays.
//
//	soundmap serve                  # relay: headsets on /ws, sources on /ws/source
//	soundmap headset --scene s.toml # connect to the relay and place markers
//	soundmap replay s.toml          # run a scripted scene and print each step
//	soundmap publish --doa 10 --tag Speech:0.9
//	soundmap status
//	soundmap config init
package main
