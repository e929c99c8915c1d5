// Package passwd hashes and verifies server passwords with Argon2id.
//
// Hashes use the PHC string format understood by most Argon2 tooling:
//
//	$argon2id$v=19$m=16384,t=2,p=2$<salt>$<key>
//
// Salt and key are unpadded standard base64. Parameters are read back from
// the string, so hashes produced with other costs verify as well.
package passwd
