/*
Package engine contains the gesture-to-harmony pipeline of the tactum
instrument.

Raw multi-touch samples flow strictly downstream: the Normalizer turns
heterogeneous per-contact sensor values into one normalized musical force per
slot; geometry extraction reduces the contact set to centroid, spread and
angle; the Classifier latches gesture archetypes on semantic events; the
Harmonizer converts angle, spread and contact layering into the continuously
evolving tactum.HarmonicState; and the VoiceLeader binds contacts to stable
output slots and drives all outbound note and expression messages.

The whole pipeline is single-threaded and runs synchronously on the thread
that receives input samples; there is exactly one writer of all its state and
no locking. The only concurrency boundaries are the Broker channels towards
the audio player and towards a presentation layer, and both are written to
with non-blocking sends. Harmony is never gated behind a boolean permission:
discrete outcomes (the committed sector, the latched archetypes) only ever
resist change through hysteresis and dwell, they are never withheld.
*/
package engine
