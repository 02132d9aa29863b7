// Package protocol defines the wire contract between the client and the
// remote build executor: message types, the CBOR gRPC codec and the
// service descriptors for the build and config services.
//
// Messages are plain Go structs encoded with Core Deterministic CBOR, so
// no generated code is needed. Both services are registered by name:
//
//	/vorpal.build.BuildService/Prepare   unary
//	/vorpal.build.BuildService/Build     server stream
//	/vorpal.config.ConfigService/Package server stream
//
// Status and retrieval calls are not part of the contract.
package protocol
