/*
Package backendclient implements the Method Normalization Layer: a
stable operation vocabulary (Add, Cat, Pin, Unpin, ListPins, ID,
ObjectStat, AddMetadata) over a heterogeneous underlying backend client.

Rather than reflectively probing methods at call time, a Client is
built from a RawClient struct of optional function fields: whoever wires
the module up decides once, at construction time, which operations the
real backend object actually supports, leaving the rest nil. Any nil
field transparently falls through to a Simulated implementation that
returns results shaped identically to the real contract, marked
Simulated: true, for a well-known table of test CIDs.
*/
package backendclient
